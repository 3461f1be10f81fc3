// Package client talks to the cytoguard triage service over gRPC and renders
// results for a terminal.
//
// The service uses protobuf well-known types only, so calls go through
// grpc.ClientConn.Invoke with no generated stubs. The session token obtained
// from CreateSession is attached to every later call as metadata.
package client
