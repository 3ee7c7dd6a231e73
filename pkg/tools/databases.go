package tools

import (
	"fmt"
	"strings"
)

// DatabaseInfo is one configured connection target. Credentials are never
// included.
type DatabaseInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Type        string `json:"type"`
	Host        string `json:"host,omitempty"`
	Port        int    `json:"port,omitempty"`
	Username    string `json:"username,omitempty"`
	Database    string `json:"database,omitempty"`
}

// DatabaseList is the catalog of configured databases.
type DatabaseList struct {
	Databases  []DatabaseInfo `json:"databases"`
	TotalCount int            `json:"total_count"`
	ConfigPath string         `json:"config_path,omitempty"`
}

func (l *DatabaseList) String() string {
	if len(l.Databases) == 0 {
		return "No databases configured"
	}

	var b strings.Builder
	for _, db := range l.Databases {
		description := db.Description
		if len(description) > 20 {
			description = description[:17] + ".."
		}
		description = pad(description, 20)

		var connection string
		if db.Type == "sqlite" {
			connection = db.Database
			if connection == "" {
				connection = db.Name
			}
		} else {
			connection = fmt.Sprintf("%s@%s:%d", db.Username, db.Host, db.Port)
		}
		fmt.Fprintf(&b, "%s %s\n", description, connection)
	}
	return strings.TrimRight(b.String(), "\n")
}

// ListDatabases reports every configured database and the active config
// path so an operator can locate and edit it.
func ListDatabases(gw Gateway) (*DatabaseList, error) {
	list := &DatabaseList{ConfigPath: gw.ConfigPath()}
	for _, name := range gw.DatabaseNames() {
		cfg, err := gw.DatabaseConfig(name)
		if err != nil {
			return nil, err
		}
		list.Databases = append(list.Databases, DatabaseInfo{
			Name:        name,
			Description: cfg.Description,
			Type:        cfg.Type,
			Host:        cfg.Host,
			Port:        cfg.Port,
			Username:    cfg.Username,
			Database:    cfg.Database,
		})
	}
	list.TotalCount = len(list.Databases)
	return list, nil
}
