//go:build tools

// Package tools pins code generators to the module so their versions are
// tracked in go.mod.
package tools

import (
	_ "google.golang.org/grpc/cmd/protoc-gen-go-grpc"
)
