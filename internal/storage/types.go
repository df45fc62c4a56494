package storage

import (
	"encoding"

	"github.com/vmihailenco/msgpack/v5"
)

type Storeable interface {
	Key() []byte
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

// The session and counter buckets hold a single record each.
var singletonKey = []byte("current")

type DBSession struct {
	UserID    string `msgpack:"userId"`
	Token     string `msgpack:"token"`
	ExpiresAt int64  `msgpack:"expiresAt"` // unix seconds, 0 for no expiry
}

func (s *DBSession) Key() []byte {
	return singletonKey
}

func (s *DBSession) MarshalBinary() (data []byte, err error) {
	type alias DBSession
	return msgpack.Marshal((*alias)(s))
}

func (s *DBSession) UnmarshalBinary(data []byte) error {
	type alias DBSession
	return msgpack.Unmarshal(data, (*alias)(s))
}

type DBCounters struct {
	Unread    int   `msgpack:"unread"`
	Reviews   int   `msgpack:"reviews"`
	UpdatedAt int64 `msgpack:"updatedAt"`
}

func (c *DBCounters) Key() []byte {
	return singletonKey
}

func (c *DBCounters) MarshalBinary() (data []byte, err error) {
	type alias DBCounters
	return msgpack.Marshal((*alias)(c))
}

func (c *DBCounters) UnmarshalBinary(data []byte) error {
	type alias DBCounters
	return msgpack.Unmarshal(data, (*alias)(c))
}
