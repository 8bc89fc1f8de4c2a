// SPDX-License-Identifier: Apache-2.0

package main

import "testing"

func TestParseGlobalFlags(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantCfg  string
		wantJSON bool
		wantRest []string
		wantErr  bool
	}{
		{
			name:     "flags before command",
			args:     []string{"--json", "--config", "rendez.yaml", "propose", "--conversation", "c1"},
			wantCfg:  "rendez.yaml",
			wantJSON: true,
			wantRest: []string{"propose", "--conversation", "c1"},
		},
		{
			name:     "equals form",
			args:     []string{"--config=custom.yaml", "tools", "list"},
			wantCfg:  "custom.yaml",
			wantRest: []string{"tools", "list"},
		},
		{
			name:    "missing config value",
			args:    []string{"--config"},
			wantErr: true,
		},
		{
			name:    "unknown flag",
			args:    []string{"--verbose"},
			wantErr: true,
		},
		{
			name:     "double dash stops parsing",
			args:     []string{"--json", "--", "--config"},
			wantJSON: true,
			wantRest: []string{"--config"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flags, rest, err := parseGlobalFlags(tt.args)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if flags.ConfigPath != tt.wantCfg || flags.JSON != tt.wantJSON {
				t.Errorf("flags = %+v", flags)
			}
			if len(rest) != len(tt.wantRest) {
				t.Fatalf("rest = %v", rest)
			}
			for i := range rest {
				if rest[i] != tt.wantRest[i] {
					t.Errorf("rest[%d] = %q, want %q", i, rest[i], tt.wantRest[i])
				}
			}
		})
	}
}
