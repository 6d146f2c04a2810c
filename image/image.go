// Package image reads and writes compiled garnet programs. An image is a
// CBOR document holding a root irep tree; symbols travel by name and are
// re-interned into the loading VM's symbol table.
package image

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/chazu/garnet/vm"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("garnet.image")

const (
	// Magic identifies a garnet image.
	Magic = "GRNT"
	// FormatVersion is the current image format version.
	FormatVersion = 1
)

var (
	ErrBadMagic     = errors.New("image: not a garnet image")
	ErrBadVersion   = errors.New("image: unsupported format version")
	ErrHashMismatch = errors.New("image: content hash mismatch")
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("image: failed to create CBOR enc mode: %v", err))
	}
	encMode = em

	// Each nested irep costs two levels (map and Reps array).
	dm, err := cbor.DecOptions{MaxNestedLevels: 1024}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("image: failed to create CBOR dec mode: %v", err))
	}
	decMode = dm
}

// Image is a decoded program image. Hash is the SHA-256 of the canonical
// encoding of the root irep tree; it is filled in by Marshal and checked by
// Unmarshal.
type Image struct {
	ID   uuid.UUID
	Hash [32]byte
	Root *vm.Irep
}

// New wraps root in an image with a fresh ID.
func New(root *vm.Irep) *Image {
	return &Image{ID: uuid.New(), Root: root}
}

// ---------------------------------------------------------------------------
// Wire format
// ---------------------------------------------------------------------------

type poolKind uint8

const (
	poolString poolKind = 1
	poolInt    poolKind = 2
	poolFloat  poolKind = 3
)

type fileHeader struct {
	Magic   string    `cbor:"1,keyasint"`
	Version uint16    `cbor:"2,keyasint"`
	ID      []byte    `cbor:"3,keyasint"`
	Root    *irepNode `cbor:"4,keyasint"`
	Hash    []byte    `cbor:"5,keyasint"`
}

type irepNode struct {
	NumLocals  uint16        `cbor:"1,keyasint"`
	NumRegs    uint16        `cbor:"2,keyasint"`
	ISeq       []byte        `cbor:"3,keyasint"`
	Pool       []poolEntry   `cbor:"4,keyasint,omitempty"`
	Syms       []string      `cbor:"5,keyasint,omitempty"`
	Reps       []*irepNode   `cbor:"6,keyasint,omitempty"`
	Handlers   []handlerNode `cbor:"7,keyasint,omitempty"`
	LocalNames []string      `cbor:"8,keyasint,omitempty"`
	Filename   string        `cbor:"9,keyasint,omitempty"`
}

type poolEntry struct {
	Kind  poolKind `cbor:"1,keyasint"`
	Str   []byte   `cbor:"2,keyasint,omitempty"`
	Int   int64    `cbor:"3,keyasint,omitempty"`
	Float float64  `cbor:"4,keyasint,omitempty"`
}

type handlerNode struct {
	Type   uint8  `cbor:"1,keyasint"`
	Begin  uint32 `cbor:"2,keyasint"`
	End    uint32 `cbor:"3,keyasint"`
	Target uint32 `cbor:"4,keyasint"`
}

// ---------------------------------------------------------------------------
// Encoding
// ---------------------------------------------------------------------------

// Encode serializes root into a new image.
func Encode(root *vm.Irep, st *vm.SymbolTable) ([]byte, error) {
	return New(root).Marshal(st)
}

// Marshal serializes the image. Symbols are resolved through st.
func (img *Image) Marshal(st *vm.SymbolTable) ([]byte, error) {
	if img.Root == nil {
		return nil, errors.New("image: nil root irep")
	}
	root, err := encodeIrep(img.Root, st)
	if err != nil {
		return nil, err
	}
	hash, err := contentHash(root)
	if err != nil {
		return nil, err
	}
	img.Hash = hash
	id := img.ID
	return encMode.Marshal(&fileHeader{
		Magic:   Magic,
		Version: FormatVersion,
		ID:      id[:],
		Root:    root,
		Hash:    hash[:],
	})
}

// contentHash hashes the canonical encoding of an irep tree. Identical
// programs hash identically regardless of image ID.
func contentHash(root *irepNode) ([32]byte, error) {
	buf, err := encMode.Marshal(root)
	if err != nil {
		return [32]byte{}, fmt.Errorf("image: hash: %w", err)
	}
	return sha256.Sum256(buf), nil
}

func encodeIrep(irep *vm.Irep, st *vm.SymbolTable) (*irepNode, error) {
	n := &irepNode{
		NumLocals:  irep.NumLocals,
		NumRegs:    irep.NumRegs,
		ISeq:       irep.ISeq,
		Syms:       symbolNames(irep.Syms, st),
		LocalNames: symbolNames(irep.LocalNames, st),
		Filename:   irep.Filename,
	}
	for i, v := range irep.Pool {
		switch {
		case v.IsInteger():
			n.Pool = append(n.Pool, poolEntry{Kind: poolInt, Int: v.Int()})
		case v.IsFloat():
			n.Pool = append(n.Pool, poolEntry{Kind: poolFloat, Float: v.Float64()})
		case v.IsString():
			n.Pool = append(n.Pool, poolEntry{Kind: poolString, Str: v.AsString().Bytes()})
		default:
			return nil, fmt.Errorf("image: pool entry %d: unsupported literal", i)
		}
	}
	for _, h := range irep.Handlers {
		n.Handlers = append(n.Handlers, handlerNode{
			Type: uint8(h.Type), Begin: h.Begin, End: h.End, Target: h.Target,
		})
	}
	for _, child := range irep.Reps {
		c, err := encodeIrep(child, st)
		if err != nil {
			return nil, err
		}
		n.Reps = append(n.Reps, c)
	}
	return n, nil
}

func symbolNames(syms []vm.Symbol, st *vm.SymbolTable) []string {
	if len(syms) == 0 {
		return nil
	}
	out := make([]string, len(syms))
	for i, s := range syms {
		out[i] = st.Name(s)
	}
	return out
}

// ---------------------------------------------------------------------------
// Decoding
// ---------------------------------------------------------------------------

// Decode reads an image and returns its root irep.
func Decode(data []byte, st *vm.SymbolTable) (*vm.Irep, error) {
	img, err := Unmarshal(data, st)
	if err != nil {
		return nil, err
	}
	return img.Root, nil
}

// Unmarshal reads an image, interning its symbols into st.
func Unmarshal(data []byte, st *vm.SymbolTable) (*Image, error) {
	var h fileHeader
	if err := decMode.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("image: unmarshal: %w", err)
	}
	if h.Magic != Magic {
		return nil, ErrBadMagic
	}
	if h.Version != FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrBadVersion, h.Version)
	}
	id, err := uuid.FromBytes(h.ID)
	if err != nil {
		return nil, fmt.Errorf("image: bad id: %w", err)
	}
	if h.Root == nil {
		return nil, errors.New("image: missing root irep")
	}
	hash, err := contentHash(h.Root)
	if err != nil {
		return nil, err
	}
	if len(h.Hash) != len(hash) || [32]byte(h.Hash) != hash {
		return nil, fmt.Errorf("%w: declared %x, computed %x", ErrHashMismatch, h.Hash, hash)
	}
	root, err := decodeIrep(h.Root, st, "root")
	if err != nil {
		return nil, err
	}
	log.Debugf("decoded image %s (%x): %d ireps, %d symbols", id, hash[:6], countIreps(root), st.Len())
	return &Image{ID: id, Hash: hash, Root: root}, nil
}

func decodeIrep(n *irepNode, st *vm.SymbolTable, path string) (*vm.Irep, error) {
	if n.NumRegs < n.NumLocals {
		return nil, fmt.Errorf("image: %s: %d registers for %d locals", path, n.NumRegs, n.NumLocals)
	}
	irep := &vm.Irep{
		NumLocals:  n.NumLocals,
		NumRegs:    n.NumRegs,
		ISeq:       n.ISeq,
		Syms:       internAll(n.Syms, st),
		LocalNames: internAll(n.LocalNames, st),
		Filename:   n.Filename,
	}
	for i, e := range n.Pool {
		switch e.Kind {
		case poolString:
			irep.Pool = append(irep.Pool, vm.StringLiteral(e.Str))
		case poolInt:
			irep.Pool = append(irep.Pool, vm.FromInt(e.Int))
		case poolFloat:
			irep.Pool = append(irep.Pool, vm.FromFloat64(e.Float))
		default:
			return nil, fmt.Errorf("image: %s: pool entry %d: unknown kind %d", path, i, e.Kind)
		}
	}
	size := uint32(len(n.ISeq))
	for i, h := range n.Handlers {
		if h.Type > uint8(vm.CatchEnsure) {
			return nil, fmt.Errorf("image: %s: handler %d: unknown type %d", path, i, h.Type)
		}
		if h.Begin > h.End || h.End > size || h.Target > size {
			return nil, fmt.Errorf("image: %s: handler %d out of range", path, i)
		}
		irep.Handlers = append(irep.Handlers, vm.CatchHandler{
			Type: vm.CatchType(h.Type), Begin: h.Begin, End: h.End, Target: h.Target,
		})
	}
	for i, c := range n.Reps {
		if c == nil {
			return nil, fmt.Errorf("image: %s: missing child %d", path, i)
		}
		child, err := decodeIrep(c, st, fmt.Sprintf("%s.%d", path, i))
		if err != nil {
			return nil, err
		}
		irep.Reps = append(irep.Reps, child)
	}
	return irep, nil
}

func countIreps(irep *vm.Irep) int {
	n := 1
	for _, c := range irep.Reps {
		n += countIreps(c)
	}
	return n
}

func internAll(names []string, st *vm.SymbolTable) []vm.Symbol {
	if len(names) == 0 {
		return nil
	}
	out := make([]vm.Symbol, len(names))
	for i, name := range names {
		out[i] = st.Intern(name)
	}
	return out
}
