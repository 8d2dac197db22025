package version

// Version is the console release string reported by the CLI and the
// User-Agent of outgoing API calls.
const Version = "pipsync/0.3.0"
