package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRun_RequiresSecretAndUser(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	assert.ErrorContains(t, run([]string{"--user", "alice"}), "secret")
	assert.ErrorContains(t, run([]string{"--secret", "s"}), "--user")
	assert.ErrorContains(t, run([]string{"-s", "s", "-u", "alice", "--ttl", "0s"}), "ttl")
	assert.NoError(t, run([]string{"-s", "s", "-u", "alice", "-r", "ADMIN"}))
}
