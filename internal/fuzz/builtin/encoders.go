package builtin

import (
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"net/url"
)

type namedEncoder struct {
	name     string
	category string
	encode   func(string) string
}

func (e namedEncoder) Name() string          { return e.name }
func (e namedEncoder) Category() string      { return e.category }
func (e namedEncoder) Encode(s string) string { return e.encode(s) }

var (
	urlencodeEncoder = namedEncoder{name: "urlencode", category: "encode", encode: url.QueryEscape}
	base64Encoder     = namedEncoder{name: "base64", category: "encode", encode: func(s string) string {
		return base64.StdEncoding.EncodeToString([]byte(s))
	}}
	md5Encoder = namedEncoder{name: "md5", category: "hash", encode: func(s string) string {
		sum := md5.Sum([]byte(s))
		return hex.EncodeToString(sum[:])
	}}
	noneEncoder = namedEncoder{name: "none", category: "encode", encode: func(s string) string { return s }}
)
