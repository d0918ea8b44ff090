// Package services implements the reference server's upload and post
// operations on top of the repositories and the blob store.
package services

import (
	"time"

	"github.com/google/uuid"
)

// newID is a seam for deterministic ids in tests.
var newID = func() string { return uuid.NewString() }

var now = time.Now
