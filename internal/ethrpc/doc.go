// Package ethrpc attaches to an Ethereum JSON-RPC endpoint over websocket.
//
// Dial retries with exponential backoff until the endpoint accepts the
// connection or the configured timeout elapses; networks that have just
// opened their port often refuse the first upgrade attempts.
package ethrpc
