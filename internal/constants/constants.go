package constants

// ServerName is the MCP server name advertised to clients. It also names the
// working-data directory root under the temp area.
const ServerName = "java-lsp"

// Version is the MCP server version advertised to clients.
const Version = "1.0.0"

// DataDirSuffix is appended to ServerName to form the parent of every
// per-workspace working-data directory.
//
// JDTLS refuses to start when its -data directory overlaps the workspace, so
// this always lives under a temp root, never under the project.
const DataDirSuffix = "-data"
