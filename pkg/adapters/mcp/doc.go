// Package mcp exposes the orchestrator to MCP clients: control tools and
// the composed chart as a resource.
package mcp
