package types

// Version is the canonical project version. The CLI, cache index format
// and usage journal format share this version under the lockstep
// versioning policy.
const Version = "0.4.2"
