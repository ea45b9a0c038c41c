package handlerruntime

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStaticSecurityGate_Validate_AllowsPlainSource(t *testing.T) {
	g := NewStaticSecurityGate()
	ok, reason := g.Validate(`package main

func Handle() string { return "hello" }`)
	assert.True(t, ok)
	assert.Empty(t, reason)
}

func TestStaticSecurityGate_Validate_RejectsOSExec(t *testing.T) {
	g := NewStaticSecurityGate()
	ok, reason := g.Validate(`import "os/exec"`)
	assert.False(t, ok)
	assert.Contains(t, reason, "os/exec")
}

func TestStaticSecurityGate_Validate_RejectsNetHTTP(t *testing.T) {
	g := NewStaticSecurityGate()
	ok, reason := g.Validate(`import "net/http"`)
	assert.False(t, ok)
	assert.Contains(t, reason, "net/http")
}

func TestStaticSecurityGate_Validate_RejectsOSGetenv(t *testing.T) {
	g := NewStaticSecurityGate()
	ok, _ := g.Validate(`token := os.Getenv("SECRET")`)
	assert.False(t, ok)
}
