package payload

import (
	"testing"
	"time"

	"github.com/Mmx233/SMQ/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestByName(t *testing.T) {
	for _, name := range []string{"raw", "json", "msgpack"} {
		c, err := ByName(name)
		require.NoError(t, err)
		assert.Equal(t, name, c.Name())

		byFlag, err := ByFlag(c.Flag())
		require.NoError(t, err)
		assert.Equal(t, c, byFlag)
	}

	_, err := ByName("xml")
	assert.ErrorIs(t, err, ErrUnknownCodec)
	_, err = ByFlag(0xF)
	assert.ErrorIs(t, err, ErrUnknownCodec)
}

func TestRawCodec(t *testing.T) {
	data, err := Raw.Marshal("hello")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	var s string
	require.NoError(t, Raw.Unmarshal([]byte("world"), &s))
	assert.Equal(t, "world", s)

	var b []byte
	require.NoError(t, Raw.Unmarshal([]byte{1, 2, 3}, &b))
	assert.Equal(t, []byte{1, 2, 3}, b)

	_, err = Raw.Marshal(42)
	assert.ErrorIs(t, err, ErrRawType)
	assert.ErrorIs(t, Raw.Unmarshal(nil, &Chat{}), ErrRawType)
}

func TestEncodeDecode(t *testing.T) {
	in := Chat{From: "node-a", Seq: 7, Text: "hi", SentAt: time.Unix(1700000000, 0).UnixNano()}

	for _, c := range []Codec{JSON, Msgpack} {
		t.Run(c.Name(), func(t *testing.T) {
			m, err := Encode(protocol.DefaultAllocator, c, 3, in)
			require.NoError(t, err)
			defer protocol.DefaultAllocator.Free(m)

			assert.Equal(t, protocol.TypeUser, m.Type)
			assert.Equal(t, c.Flag(), m.Flags)
			assert.Equal(t, protocol.Address(3), m.Target)

			var out Chat
			require.NoError(t, Decode(m, &out))
			assert.Equal(t, in, out)
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	m, err := protocol.Encode(protocol.DefaultAllocator, protocol.TypeUser, 0x9, 0, []byte("{}"))
	require.NoError(t, err)
	defer protocol.DefaultAllocator.Free(m)

	var out Chat
	assert.ErrorIs(t, Decode(m, &out), ErrUnknownCodec)

	m.Flags = FlagJSON
	require.NoError(t, m.SetPayload([]byte("{not json")))
	err = Decode(m, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal json payload")
}

func TestEncode_MarshalError(t *testing.T) {
	_, err := Encode(protocol.DefaultAllocator, JSON, 1, make(chan int))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "marshal json payload")
}

func TestChatRoundTrip_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		in := Chat{
			From:   rapid.String().Draw(t, "from"),
			Seq:    rapid.Uint64().Draw(t, "seq"),
			Text:   rapid.String().Draw(t, "text"),
			SentAt: rapid.Int64().Draw(t, "sentAt"),
		}
		c := rapid.SampledFrom([]Codec{JSON, Msgpack}).Draw(t, "codec")

		m, err := Encode(protocol.DefaultAllocator, c, 1, in)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		defer protocol.DefaultAllocator.Free(m)

		var out Chat
		if err := Decode(m, &out); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if out != in {
			t.Fatalf("round trip mismatch: got %+v, want %+v", out, in)
		}
	})
}
