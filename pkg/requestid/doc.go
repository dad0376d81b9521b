// Package requestid tags every request with a correlation id.
//
// Middleware reuses a well-formed X-Request-ID header from the client or
// generates a UUID, stores it in the request context and echoes it in the
// response. LoggerExtractor plugs the id into logger.WithContextExtractors
// so tracker log records can be matched to the request that produced them.
package requestid
