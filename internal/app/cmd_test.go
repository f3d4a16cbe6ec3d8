package app

import (
	"testing"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    Command
		wantErr bool
	}{
		{"引数なしはserve", []string{}, CommandServe, false},
		{"serve", []string{"serve"}, CommandServe, false},
		{"worker", []string{"worker"}, CommandWorker, false},
		{"migrate", []string{"migrate"}, CommandMigrate, false},
		{"healthcheck", []string{"healthcheck"}, CommandHealthcheck, false},
		{"余分な引数は無視", []string{"worker", "--verbose"}, CommandWorker, false},
		{"未知のコマンドはエラー", []string{"fetch"}, "", true},
		{"大文字は区別する", []string{"Serve"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCommand(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseCommand(%v) error = %v, wantErr %v", tt.args, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseCommand(%v) = %q, want %q", tt.args, got, tt.want)
			}
		})
	}
}
