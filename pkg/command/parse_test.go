package command

import (
	"context"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestValidateTemplate(t *testing.T) {
	tests := []struct {
		name      string
		cmd       string
		wantError bool
	}{
		{"safe curl command", "curl -fsS {url}", false},
		{"safe command with quotes", `notify-send "signed" {url}`, false},
		{"command with semicolon", "curl {url}; rm -rf /", true},
		{"command with ampersand", "curl {url} &", true},
		{"command with pipe", "curl {url} | tee log", true},
		{"command with backticks", "echo `id`", true},
		{"command with command substitution", "echo $(id)", true},
		{"command with variable substitution", "echo ${HOME}", true},
		{"command with redirect", "curl {url} > out", true},
		{"command with sudo", "sudo curl {url}", true},
		{"empty command", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateTemplate(tt.cmd)
			if (err != nil) != tt.wantError {
				t.Errorf("validateTemplate() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name        string
		cmd         string
		wantCommand string
		wantArgs    []string
		wantError   bool
	}{
		{
			name:        "simple command",
			cmd:         "curl -fsS {url}",
			wantCommand: "curl",
			wantArgs:    []string{"-fsS", "{url}"},
		},
		{
			name:        "quoted argument",
			cmd:         `wget -O "my file.zip" {url}`,
			wantCommand: "wget",
			wantArgs:    []string{"-O", "my file.zip", "{url}"},
		},
		{
			name:      "empty command",
			cmd:       "",
			wantError: true,
		},
		{
			name:      "dangerous command",
			cmd:       "curl {url} && echo done",
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmdBin, args, err := Parse(tt.cmd)
			if (err != nil) != tt.wantError {
				t.Fatalf("Parse() error = %v, wantError %v", err, tt.wantError)
			}
			if tt.wantError {
				return
			}
			if cmdBin != tt.wantCommand {
				t.Errorf("Parse() command = %q, want %q", cmdBin, tt.wantCommand)
			}
			if !reflect.DeepEqual(args, tt.wantArgs) {
				t.Errorf("Parse() args = %v, want %v", args, tt.wantArgs)
			}
		})
	}
}

func TestExpand(t *testing.T) {
	// URL 中的 & 在解析之后替换，不触发安全校验
	signedURL := "http://x/y?expires=1&ip=&method=&r=n&sig=cafe"
	cmdBin, args := expand("echo", []string{"-n", "{url}"}, signedURL)
	if cmdBin != "echo" {
		t.Errorf("expand() command = %q", cmdBin)
	}
	if !reflect.DeepEqual(args, []string{"-n", signedURL}) {
		t.Errorf("expand() args = %v", args)
	}
}

func TestExecuteWithURL(t *testing.T) {
	out, err := ExecuteWithURL(context.Background(), "echo {url}", "http://x/y?a=1&sig=cafe", 5*time.Second)
	if err != nil {
		t.Fatalf("ExecuteWithURL() error = %v", err)
	}
	if !strings.Contains(out, "http://x/y?a=1&sig=cafe") {
		t.Errorf("ExecuteWithURL() output = %q", out)
	}

	// 不安全模板直接拒绝
	if _, err := ExecuteWithURL(context.Background(), "echo {url}; id", "http://x", time.Second); err == nil {
		t.Error("ExecuteWithURL() should reject dangerous template")
	}
}
