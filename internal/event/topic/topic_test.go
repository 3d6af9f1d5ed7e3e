package topic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestName_Segments(t *testing.T) {
	tests := []struct {
		name     Name
		expected []string
		count    int
	}{
		{Name("app:calculator:ready"), []string{"app", "calculator", "ready"}, 3},
		{Name("window:open"), []string{"window", "open"}, 2},
		{Name("single"), []string{"single"}, 1},
		{Name(""), nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name.String(), func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.name.Segments())
			assert.Equal(t, tt.count, tt.name.SegmentCount())
		})
	}
}

func TestName_ParentChildBase(t *testing.T) {
	n := Name("app").Child("calculator").Child("ready")
	assert.Equal(t, Name("app:calculator:ready"), n)
	assert.Equal(t, Name("app:calculator"), n.Parent())
	assert.Equal(t, "ready", n.Base())
	assert.Equal(t, Name(""), Name("root").Parent())
	assert.Equal(t, Name("x"), Name("").Child("x"))
}

func TestName_Qualify(t *testing.T) {
	ns := Name("desktop")
	assert.Equal(t, Name("desktop:window:open"), ns.Qualify("window:open"))
	assert.Equal(t, Name("window:open"), Name("").Qualify("window:open"))
	assert.Equal(t, Name("desktop"), ns.Qualify(""))

	inner, ok := Name("desktop:window:open").Unqualify(ns)
	assert.True(t, ok)
	assert.Equal(t, Name("window:open"), inner)

	_, ok = Name("desktopx:window").Unqualify(ns)
	assert.False(t, ok)
	_, ok = Name("desktop").Unqualify(ns)
	assert.False(t, ok)
}

func TestName_HasPrefix(t *testing.T) {
	tests := []struct {
		name   Name
		prefix Name
		want   bool
	}{
		{"app:startup", "app", true},
		{"app:startup", "", true},
		{"application:startup", "app", false},
		{"app", "app", true},
		{"app:calculator:ready", "app:calculator", true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.name.HasPrefix(tt.prefix), "%s has prefix %s", tt.name, tt.prefix)
	}
}

func TestName_IsValid(t *testing.T) {
	valid := []Name{"window:open", "user", "app:calc:message"}
	invalid := []Name{"", ":open", "window:", "window::open", "window open"}

	for _, n := range valid {
		assert.True(t, n.IsValid(), "%q should be valid", n)
	}
	for _, n := range invalid {
		assert.False(t, n.IsValid(), "%q should be invalid", n)
	}
}

func TestJoin(t *testing.T) {
	assert.Equal(t, Name("system:broadcast"), Join("system", "broadcast"))
	assert.Equal(t, Name(""), Join())
}
