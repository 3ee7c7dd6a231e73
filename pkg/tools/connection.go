package tools

import (
	"context"
	"fmt"
)

// ConnectionStatus is the outcome of a connectivity probe.
type ConnectionStatus struct {
	Database string `json:"database"`
	Healthy  bool   `json:"healthy"`
	Error    string `json:"error,omitempty"`
}

func (s *ConnectionStatus) String() string {
	if s.Healthy {
		return fmt.Sprintf("Connection to database '%s' is healthy", s.Database)
	}
	return fmt.Sprintf("Connection to database '%s' failed: %s", s.Database, s.Error)
}

// TestConnection pings a database and runs a trivial query. Failures are
// reported in the response rather than as an error so the caller always
// gets a status.
func TestConnection(ctx context.Context, gw Gateway, database string) (*ConnectionStatus, error) {
	status := &ConnectionStatus{Database: database}

	if err := gw.Ping(ctx, database); err != nil {
		status.Error = err.Error()
		return status, nil
	}
	if _, err := gw.Execute(ctx, database, "SELECT 1"); err != nil {
		status.Error = err.Error()
		return status, nil
	}
	status.Healthy = true
	return status, nil
}
