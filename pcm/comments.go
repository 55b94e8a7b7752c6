package pcm

import (
	"errors"
	"fmt"
	"strings"
)

var errNilComments = errors.New("nil comments; use NewComments")

// Comments is an ordered set of Vorbis comments.
// Keys are stored in upper case and compared case-insensitively.
type Comments struct {
	keys   []string
	values map[string]string
}

// NewComments returns an empty set of comments.
func NewComments() *Comments {
	return &Comments{values: make(map[string]string)}
}

// Set stores value under key, replacing the value of an existing key in place.
// A key must consist of printable ASCII characters other than '='.
func (c *Comments) Set(key, value string) error {
	if c == nil {
		return validationError("comment", errNilComments)
	}

	if err := checkKey(key); err != nil {
		return validationError("comment", err)
	}

	c.set(key, value)
	return nil
}

// Get returns the value stored under key.
func (c *Comments) Get(key string) (string, bool) {
	if c == nil {
		return "", false
	}

	value, ok := c.values[strings.ToUpper(key)]
	return value, ok
}

// Delete removes key.
func (c *Comments) Delete(key string) {
	if c == nil {
		return
	}

	key = strings.ToUpper(key)
	if _, ok := c.values[key]; !ok {
		return
	}

	delete(c.values, key)
	for i, k := range c.keys {
		if k == key {
			c.keys = append(c.keys[:i], c.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (c *Comments) Keys() []string {
	if c == nil {
		return nil
	}
	return append([]string(nil), c.keys...)
}

// Len returns the number of comments.
func (c *Comments) Len() int {
	if c == nil {
		return 0
	}
	return len(c.keys)
}

// Clone returns a copy of c.
func (c *Comments) Clone() *Comments {
	clone := NewComments()
	if c == nil {
		return clone
	}

	for _, key := range c.keys {
		clone.set(key, c.values[key])
	}

	return clone
}

// Tags returns the comments as name-value pairs in insertion order.
func (c *Comments) Tags() [][2]string {
	tags := make([][2]string, 0, c.Len())
	for _, key := range c.Keys() {
		tags = append(tags, [2]string{key, c.values[key]})
	}
	return tags
}

// set stores value under key without validating it;
// a repeated key keeps the position of its first occurrence.
func (c *Comments) set(key, value string) {
	if c.values == nil {
		c.values = make(map[string]string)
	}

	key = strings.ToUpper(key)
	if _, ok := c.values[key]; !ok {
		c.keys = append(c.keys, key)
	}
	c.values[key] = value
}

// checkKey reports whether key is a valid Vorbis comment field name.
func checkKey(key string) error {
	if key == "" {
		return fmt.Errorf("empty comment key")
	}

	for i := 0; i < len(key); i++ {
		if b := key[i]; b < 0x20 || b > 0x7D || b == '=' {
			return fmt.Errorf("invalid character %q in comment key %q", b, key)
		}
	}

	return nil
}
