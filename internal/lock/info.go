package lock

import (
	"encoding/json"
	"os"
	"strconv"
	"time"
)

// Info describes who holds a lock. It is stored as JSON inside the lock
// directory so a waiting run can say who it is waiting for.
type Info struct {
	User     string    `json:"user"`
	Hostname string    `json:"hostname"`
	Started  time.Time `json:"started"`
	PID      int       `json:"pid"`
	Command  string    `json:"command,omitempty"`
}

// NewInfo describes the current process.
func NewInfo(command string) *Info {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	user := os.Getenv("USER")
	if user == "" {
		user = "unknown"
	}
	return &Info{
		User:     user,
		Hostname: hostname,
		Started:  time.Now(),
		PID:      os.Getpid(),
		Command:  command,
	}
}

// Age returns how long ago the lock was acquired.
func (i *Info) Age() time.Duration {
	return time.Since(i.Started)
}

// Marshal serializes the Info to JSON.
func (i *Info) Marshal() ([]byte, error) {
	return json.Marshal(i)
}

// ParseInfo deserializes JSON data into an Info.
func ParseInfo(data []byte) (*Info, error) {
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// String returns a human-readable description of who holds the lock.
func (i *Info) String() string {
	s := i.User + "@" + i.Hostname + " (pid " + strconv.Itoa(i.PID)
	if !i.Started.IsZero() {
		s += ", started " + i.Started.Local().Format("15:04:05")
	}
	return s + ")"
}
