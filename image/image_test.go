package image

import (
	"testing"

	"github.com/chazu/garnet/vm"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildProgram assembles `"gar" << "net"` with a float, a wide integer,
// a child block and a rescue handler so every irep section is populated.
func buildProgram(st *vm.SymbolTable) *vm.Irep {
	child := vm.NewIrepBuilder(st, 2, 3).
		SetLocalNames("x").
		LoadSym(2, "unused").
		Emit(vm.OpReturn, 1).
		MustBuild()

	b := vm.NewIrepBuilder(st, 1, 5).SetFilename("prog.rb")
	b.LoadString(1, "gar")
	b.LoadString(2, "net")
	b.Emit(vm.OpStrCat, 1)
	b.LoadFloat(3, 2.5)
	b.LoadInt(4, 1<<40)
	b.Emit(vm.OpBlock, 3, b.Child(child))
	end := b.Pos()
	b.Handler(vm.CatchRescue, 0, end, end)
	b.Emit(vm.OpReturn, 1)
	return b.MustBuild()
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	st := vm.NewSymbolTable()
	root := buildProgram(st)

	data, err := Encode(root, st)
	require.NoError(t, err)

	other := vm.NewSymbolTable()
	other.Intern("shift-the-ids")
	got, err := Decode(data, other)
	require.NoError(t, err)

	assert.Equal(t, root.NumLocals, got.NumLocals)
	assert.Equal(t, root.NumRegs, got.NumRegs)
	assert.Equal(t, root.ISeq, got.ISeq)
	assert.Equal(t, "prog.rb", got.Filename)
	assert.Equal(t, root.Handlers, got.Handlers)

	require.Len(t, got.Pool, 4)
	assert.Equal(t, "gar", got.Pool[0].AsString().String())
	assert.Equal(t, "net", got.Pool[1].AsString().String())
	assert.Equal(t, 2.5, got.Pool[2].Float64())
	assert.Equal(t, int64(1<<40), got.Pool[3].Int())

	require.Len(t, got.Reps, 1)
	c := got.Reps[0]
	require.Len(t, c.Syms, 1)
	assert.Equal(t, "unused", other.Name(c.Syms[0]))
	require.Len(t, c.LocalNames, 1)
	assert.Equal(t, "x", other.Name(c.LocalNames[0]))
}

func TestDecodedImageRuns(t *testing.T) {
	st := vm.NewSymbolTable()
	data, err := Encode(buildProgram(st), st)
	require.NoError(t, err)

	m := vm.NewVM()
	irep, err := Decode(data, m.Symbols)
	require.NoError(t, err)

	v, err := m.Exec(irep)
	require.NoError(t, err)
	assert.Equal(t, `"garnet"`, m.InspectString(v))
}

func TestEncodingIsDeterministic(t *testing.T) {
	st := vm.NewSymbolTable()
	img := New(buildProgram(st))

	a, err := img.Marshal(st)
	require.NoError(t, err)
	b, err := img.Marshal(st)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	got, err := Unmarshal(a, vm.NewSymbolTable())
	require.NoError(t, err)
	assert.Equal(t, img.ID, got.ID)
}

func TestEncodeRejectsUnsupportedLiteral(t *testing.T) {
	st := vm.NewSymbolTable()
	b := vm.NewIrepBuilder(st, 1, 2)
	b.Emit(vm.OpLoadL, 1, b.Lit(vm.True))
	b.Emit(vm.OpReturn, 1)

	_, err := Encode(b.MustBuild(), st)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported literal")
}

func TestEncodeNilRoot(t *testing.T) {
	_, err := Encode(nil, vm.NewSymbolTable())
	assert.Error(t, err)
}

// rawImage encodes a hand-built header, filling in the content hash.
func rawImage(t *testing.T, h fileHeader) []byte {
	t.Helper()
	if h.ID == nil {
		id := uuid.New()
		h.ID = id[:]
	}
	if h.Hash == nil {
		hash, err := contentHash(h.Root)
		require.NoError(t, err)
		h.Hash = hash[:]
	}
	data, err := cbor.Marshal(&h)
	require.NoError(t, err)
	return data
}

func TestDecodeBadMagic(t *testing.T) {
	data := rawImage(t, fileHeader{
		Magic: "NOPE", Version: FormatVersion,
		Root: &irepNode{NumLocals: 1, NumRegs: 1},
	})
	_, err := Decode(data, vm.NewSymbolTable())
	assert.ErrorIs(t, err, ErrBadMagic)
}

func TestDecodeBadVersion(t *testing.T) {
	data := rawImage(t, fileHeader{
		Magic: Magic, Version: FormatVersion + 1,
		Root: &irepNode{NumLocals: 1, NumRegs: 1},
	})
	_, err := Decode(data, vm.NewSymbolTable())
	assert.ErrorIs(t, err, ErrBadVersion)
}

func TestDecodeRejectsHandlerOutOfRange(t *testing.T) {
	data := rawImage(t, fileHeader{
		Magic: Magic, Version: FormatVersion,
		Root: &irepNode{
			NumLocals: 1, NumRegs: 2,
			ISeq:     []byte{byte(vm.OpReturn), 1},
			Handlers: []handlerNode{{Type: uint8(vm.CatchEnsure), Begin: 0, End: 9, Target: 0}},
		},
	})
	_, err := Decode(data, vm.NewSymbolTable())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestContentHashIgnoresImageID(t *testing.T) {
	st := vm.NewSymbolTable()
	root := buildProgram(st)
	a, b := New(root), New(root)
	require.NotEqual(t, a.ID, b.ID)

	_, err := a.Marshal(st)
	require.NoError(t, err)
	_, err = b.Marshal(st)
	require.NoError(t, err)
	assert.Equal(t, a.Hash, b.Hash)
	assert.NotEqual(t, [32]byte{}, a.Hash)

	data, err := a.Marshal(st)
	require.NoError(t, err)
	got, err := Unmarshal(data, vm.NewSymbolTable())
	require.NoError(t, err)
	assert.Equal(t, a.Hash, got.Hash)
}

func TestDecodeRejectsTamperedCode(t *testing.T) {
	root := &irepNode{NumLocals: 1, NumRegs: 2, ISeq: []byte{byte(vm.OpLoadI1), 1, byte(vm.OpReturn), 1}}
	hash, err := contentHash(root)
	require.NoError(t, err)

	tampered := *root
	tampered.ISeq = []byte{byte(vm.OpLoadI2), 1, byte(vm.OpReturn), 1}
	data := rawImage(t, fileHeader{Magic: Magic, Version: FormatVersion, Root: &tampered, Hash: hash[:]})

	_, err = Decode(data, vm.NewSymbolTable())
	assert.ErrorIs(t, err, ErrHashMismatch)

	data = rawImage(t, fileHeader{Magic: Magic, Version: FormatVersion, Root: root, Hash: []byte{1, 2, 3}})
	_, err = Decode(data, vm.NewSymbolTable())
	assert.ErrorIs(t, err, ErrHashMismatch)
}

func TestDecodeGarbage(t *testing.T) {
	_, err := Decode([]byte{0xff, 0x00, 0x13}, vm.NewSymbolTable())
	assert.Error(t, err)
}
