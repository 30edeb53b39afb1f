// SPDX-License-Identifier: MIT
package build

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	origName    string
	origTime    string
	origCommit  string
	origVersion string
	origFlags   ldFlags
)

func TestMain(m *testing.M) {
	origName = buildName
	origTime = buildTime
	origCommit = buildCommit
	origVersion = buildVersion
	origFlags = *buildFlags

	exitCode := m.Run()

	buildName = origName
	buildTime = origTime
	buildCommit = origCommit
	buildVersion = origVersion
	*buildFlags = origFlags

	os.Exit(exitCode)
}

func TestInitialize(t *testing.T) {
	tests := []struct {
		name        string
		buildName   string
		buildTime   string
		buildCommit string
		buildVer    string
		wantErrs    []string
		want        ldFlags
	}{
		{
			name:        "Missing BuildName",
			buildTime:   "2025-04-13",
			buildCommit: "abcdef123",
			buildVer:    "v1.0.0",
			wantErrs:    []string{"BuildName is not set"},
			want:        ldFlags{Name: "passthru", Description: Description, Time: "2025-04-13", Commit: "abcdef123", Version: "v1.0.0"},
		},
		{
			name:      "Missing Commit And Version",
			buildName: "testapp",
			buildTime: "2025-04-13",
			wantErrs:  []string{"BuildCommit is not set", "BuildVersion is not set"},
			want:      ldFlags{Name: "testapp", Description: Description, Time: "2025-04-13", Commit: "unknown", Version: "dev"},
		},
		{
			name:        "Success Case",
			buildName:   "testapp",
			buildTime:   "2025-04-13",
			buildCommit: "abcdef123",
			buildVer:    "v1.0.0",
			want:        ldFlags{Name: "testapp", Description: Description, Time: "2025-04-13", Commit: "abcdef123", Version: "v1.0.0"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			*buildFlags = origFlags
			buildName = tt.buildName
			buildTime = tt.buildTime
			buildCommit = tt.buildCommit
			buildVersion = tt.buildVer

			err := Initialize()

			if len(tt.wantErrs) == 0 {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				for _, msg := range tt.wantErrs {
					assert.Contains(t, err.Error(), msg)
				}
			}
			assert.Equal(t, tt.want, *GetBuildFlags())
		})
	}
}

func TestString(t *testing.T) {
	f := &ldFlags{Name: "passthru", Time: "2025-04-13", Commit: "abcdef1", Version: "v0.3.0"}
	assert.Equal(t, "passthru v0.3.0 (commit abcdef1, built 2025-04-13)", f.String())
}
