// Package main is anrclient, a command line consumer for anrd.
//
// Usage:
//
//	anrclient run --server http://localhost:8000 --session 1 --work 20ms
//	anrclient dispatch --session 1 --event 7
//	anrclient ack --session 1 --event 7
//	anrclient status --session 1
//	anrclient health --grpc localhost:50061 --session 1
package main
