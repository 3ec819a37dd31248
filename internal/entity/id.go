package entity

import "strconv"

// ID identifies a controlled character for the lifetime of its connection.
type ID uint32

func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

func (id ID) Valid() bool {
	return id > 0
}
