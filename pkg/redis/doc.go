// Package redis connects to Redis with go-redis/v9.
//
// Connect retries until the server answers PING or the configured timeout
// passes; Healthcheck adapts a client to a readiness probe.
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	ready := redis.Healthcheck(client)
package redis
