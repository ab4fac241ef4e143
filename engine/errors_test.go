package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategoryOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{"nil", nil, CategoryNone},
		{"explicit category", Categorize(CategoryValidation, errors.New("bad")), CategoryValidation},
		{"wrapped explicit category", fmt.Errorf("outer: %w", Categorize(CategoryNetwork, errors.New("refused"))), CategoryNetwork},
		{"deadline", context.DeadlineExceeded, CategoryTimeout},
		{"canceled", context.Canceled, CategoryCancellation},
		{"unauthorized", &HTTPError{StatusCode: 401}, CategoryAuthorization},
		{"forbidden", &HTTPError{StatusCode: 403}, CategoryAuthorization},
		{"not found", &HTTPError{StatusCode: 404}, CategoryNotFound},
		{"bad request", &HTTPError{StatusCode: 400}, CategoryValidation},
		{"teapot", &HTTPError{StatusCode: 418}, CategoryClientError},
		{"server error", &HTTPError{StatusCode: 503}, CategoryServerError},
		{"net error", &net.DNSError{Err: "no such host"}, CategoryNetwork},
		{"net timeout", &net.DNSError{Err: "timeout", IsTimeout: true}, CategoryTimeout},
		{"plain", errors.New("mystery"), CategoryUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CategoryOf(tt.err))
		})
	}
}

func TestConfigErrorMessage(t *testing.T) {
	one := newConfigError("bad concurrency")
	assert.Equal(t, "config: bad concurrency", one.Error())

	many := newConfigError("a", "b")
	assert.Contains(t, many.Error(), "2 issues")
	assert.Contains(t, many.Error(), "a; b")
}

func TestDefaultRetryableCategories(t *testing.T) {
	set := map[ErrorCategory]bool{}
	for _, c := range DefaultRetryableCategories() {
		set[c] = true
	}
	assert.True(t, set[CategoryNetwork])
	assert.True(t, set[CategoryTimeout])
	assert.True(t, set[CategoryServerError])
	assert.False(t, set[CategoryValidation])
	assert.False(t, set[CategoryAuthorization])
	assert.False(t, set[CategoryNotFound])
	assert.False(t, set[CategoryCancellation])
}

func TestCategorizeWithoutErr(t *testing.T) {
	err := Categorize(CategoryAborted, nil)
	assert.Equal(t, CategoryAborted, CategoryOf(err))
	assert.NotEmpty(t, err.Error())
}
