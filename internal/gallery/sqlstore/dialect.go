package sqlstore

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/faceid/internal/face"
)

// dialect captures what differs between the supported databases.
type dialect struct {
	name      string
	driver    string
	dollarArg bool   // $1 placeholders instead of ?
	upsert    string // identity upsert, written with ? placeholders
	vector    vectorCodec
}

type vectorCodec interface {
	encode(v face.Embedding) any
	// scanner returns a scan destination and a function decoding it after Scan.
	scanner() (any, func() (face.Embedding, error))
}

var (
	sqliteDialect = dialect{
		name:   "sqlite",
		driver: "sqlite",
		upsert: `INSERT INTO identities (identity_key, model_version, dim, registered_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(identity_key) DO UPDATE SET model_version = excluded.model_version, dim = excluded.dim, registered_at = excluded.registered_at`,
		vector: blobCodec{},
	}
	postgresDialect = dialect{
		name:      "postgres",
		driver:    "postgres",
		dollarArg: true,
		upsert: `INSERT INTO identities (identity_key, model_version, dim, registered_at) VALUES (?, ?, ?, ?)
			ON CONFLICT (identity_key) DO UPDATE SET model_version = EXCLUDED.model_version, dim = EXCLUDED.dim, registered_at = EXCLUDED.registered_at`,
		vector: pgvectorCodec{},
	}
	mysqlDialect = dialect{
		name:   "mysql",
		driver: "mysql",
		upsert: `INSERT INTO identities (identity_key, model_version, dim, registered_at) VALUES (?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE model_version = VALUES(model_version), dim = VALUES(dim), registered_at = VALUES(registered_at)`,
		vector: blobCodec{},
	}
)

// rebind rewrites ? placeholders for dialects that number their arguments.
func (d dialect) rebind(query string) string {
	if !d.dollarArg {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// blobCodec stores vectors as little-endian float32 bytes.
type blobCodec struct{}

func (blobCodec) encode(v face.Embedding) any {
	return encodeFloat32Slice(v)
}

func (blobCodec) scanner() (any, func() (face.Embedding, error)) {
	var raw []byte
	return &raw, func() (face.Embedding, error) { return decodeFloat32Slice(raw) }
}

func encodeFloat32Slice(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeFloat32Slice(buf []byte) (face.Embedding, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("vector blob has %d bytes, not a multiple of 4", len(buf))
	}
	v := make(face.Embedding, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v, nil
}

// pgvectorCodec uses the pgvector vector type.
type pgvectorCodec struct{}

func (pgvectorCodec) encode(v face.Embedding) any {
	return pgvector.NewVector(v)
}

func (pgvectorCodec) scanner() (any, func() (face.Embedding, error)) {
	var vec pgvector.Vector
	return &vec, func() (face.Embedding, error) { return face.Embedding(vec.Slice()), nil }
}
