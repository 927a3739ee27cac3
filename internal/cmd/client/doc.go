// Package client provides the `warden` command-line client.
//
// The CLI talks to the Warden admin HTTP API to search and write events and
// to inspect and administer intruder lockouts from a terminal. It is
// primarily intended for operators.
//
// # Address configuration
//
// The HTTP base URL is discovered by the application that embeds the
// commands via a BaseURLFunc. When using the standalone binary, it is read
// from WARDEN_HTTP and defaults to http://127.0.0.1:8080.
//
// Usage
//
//	warden events write --level WARN --topic auth --actor alice -m "password changed"
//	warden events search --actor 'adm.*' --level WARN --count 20
//	warden events search --filter 'topic == "auth" && level >= 3'
//
//	warden intruder record --username alice --address 10.0.0.5
//	warden intruder record --username alice --success
//	warden intruder check --username alice --address 10.0.0.5
//	warden intruder show user alice
//	warden intruder clear address 10.0.0.5
//
//	warden health
package client
