package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/patchforge/opsync/pkg/paths"
)

// PathsOutput represents the XDG-compliant paths used by opsync.
type PathsOutput struct {
	ConfigDir    string `json:"config_dir"`
	StateDir     string `json:"state_dir"`
	CacheDir     string `json:"cache_dir"`
	RuntimeDir   string `json:"runtime_dir"`
	LogDir       string `json:"log_dir"`
	SocketPath   string `json:"socket_path"`
	PidFilePath  string `json:"pid_file_path"`
	SnapshotPath string `json:"snapshot_path"`
}

// NewPathsCmd prints every resolved filesystem location in JSON, for scripts
// and for debugging OPSYNC_HOME / XDG overrides.
func NewPathsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print the XDG-compliant paths used by opsync",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := PathsOutput{
				ConfigDir:    paths.ConfigDir(),
				StateDir:     paths.StateDir(),
				CacheDir:     paths.CacheDir(),
				RuntimeDir:   paths.RuntimeDir(),
				LogDir:       paths.LogDir(),
				SocketPath:   paths.SocketPath(),
				PidFilePath:  paths.PidFilePath(),
				SnapshotPath: paths.SnapshotPath(),
			}

			jsonData, err := json.MarshalIndent(output, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal paths to JSON: %w", err)
			}
			fmt.Println(string(jsonData))
			return nil
		},
	}
}
