// Package ident generates collision-resistant, typed identifiers for
// domain entities. Identifiers carry a short prefix naming the entity
// kind so a raw ID seen in a log line can be traced back to its type.
package ident

import (
	"crypto/rand"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind enumerates the entity types that may own an identifier.
type Kind string

const (
	Tender              Kind = "tender"
	TenderItem          Kind = "tender_item"
	RawMaterial         Kind = "raw_material"
	LocalProduct        Kind = "local_product"
	ForeignProduct      Kind = "foreign_product"
	ManufacturedProduct Kind = "manufactured_product"
	Document            Kind = "document"
	Activity            Kind = "activity"
	Trash               Kind = "trash"
	User                Kind = "user"
	Company             Kind = "company"
	Supplier            Kind = "supplier"
)

// prefixes maps each kind to its identifier prefix. Prefixes must stay
// unique; KindOf depends on the reverse lookup.
var prefixes = map[Kind]string{
	Tender:              "tnd",
	TenderItem:          "itm",
	RawMaterial:         "raw",
	LocalProduct:        "lpr",
	ForeignProduct:      "fpr",
	ManufacturedProduct: "mfg",
	Document:            "doc",
	Activity:            "act",
	Trash:               "trs",
	User:                "usr",
	Company:             "cmp",
	Supplier:            "sup",
}

var kinds = func() map[string]Kind {
	m := make(map[string]Kind, len(prefixes))
	for k, p := range prefixes {
		m[p] = k
	}
	return m
}()

const randLen = 6

// alphabet used for the random suffix, base36 to match the timestamp part.
const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// New returns an identifier of the form <prefix>_<base36-millis><random>.
// It fails when the kind is not part of the closed enumeration.
func New(kind Kind) (string, error) {
	prefix, ok := prefixes[kind]
	if !ok {
		return "", fmt.Errorf("ident: unknown entity kind %q", kind)
	}

	buf := make([]byte, randLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("ident: read random source: %w", err)
	}
	for i := range buf {
		buf[i] = alphabet[int(buf[i])%len(alphabet)]
	}

	ts := strconv.FormatInt(time.Now().UnixMilli(), 36)
	return prefix + "_" + ts + string(buf), nil
}

// MustNew is New for call sites where an unknown kind is a programming
// error, e.g. generating IDs for a hard-coded kind.
func MustNew(kind Kind) string {
	id, err := New(kind)
	if err != nil {
		panic(err)
	}
	return id
}

// KindOf extracts the entity kind back out of an identifier by prefix
// lookup. The second result is false when the prefix is unrecognized.
func KindOf(id string) (Kind, bool) {
	prefix, _, ok := strings.Cut(id, "_")
	if !ok {
		return "", false
	}
	kind, ok := kinds[prefix]
	return kind, ok
}
