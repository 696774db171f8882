package process

// ProcessID represents a unique identifier for a process
type ProcessID int

// ProcessInfo contains basic information about a process
type ProcessInfo struct {
	PID  ProcessID // Process ID
	Name string    // Executable name as reported by the OS
	Exe  string    // Path to the executable, empty when it cannot be queried
}

// Handle is one OS handle or file descriptor the target process holds open.
type Handle struct {
	Value uint64 // Raw handle or fd number in the target process
	Type  string // "file", "socket", ... where the backend can tell
	Path  string // Resolved path for file handles
}
