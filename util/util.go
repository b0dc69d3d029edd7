package util

import (
	log "github.com/sirupsen/logrus"
)

// DPrintf logs at debug level for level <= 1 and at trace level above that.
func DPrintf(level uint64, format string, a ...interface{}) {
	if level <= 1 {
		log.Debugf(format, a...)
	} else {
		log.Tracef(format, a...)
	}
}

// RoundUp is the number of sz-sized units needed to hold n.
func RoundUp(n, sz uint64) uint64 {
	return (n + sz - 1) / sz
}

func Min(n, m uint64) uint64 {
	if n < m {
		return n
	}
	return m
}

// SumOverflows reports whether a+b wraps around 2^64.
func SumOverflows(a, b uint64) bool {
	return a+b < a
}

func CloneByteSlice(s []byte) []byte {
	s2 := make([]byte, len(s))
	copy(s2, s)
	return s2
}
