package cache

import (
	"fmt"
	"testing"
)

func BenchmarkCacheGet(b *testing.B) {
	c := New(Options[string]{MaxSize: 10000})
	for i := 0; i < 1000; i++ {
		c.Set(fmt.Sprintf("mod%d.lua", i), "local x = 1")
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Get("mod999.lua")
	}
}

func BenchmarkCacheSet(b *testing.B) {
	c := New(Options[string]{MaxSize: 10000})
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Set(fmt.Sprintf("mod%d.lua", i), "local x = 1")
	}
}
