package sharing

import (
	"bytes"
	"io"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/require"
)

var parseTests = []struct {
	frame     string
	kind      CommandKind
	args      []string
	wellFomed bool
}{
	{"auth alice secret", Auth, []string{"alice", "secret"}, true},
	{"auth alice", Auth, []string{"alice"}, false},
	{"port 50000", Port, []string{"50000"}, true},
	{"hbt", Heartbeat, []string{}, true},
	{"lap", ListPeers, []string{}, true},
	{"lap extra", ListPeers, []string{"extra"}, true},
	{"pub report.pdf", Publish, []string{"report.pdf"}, true},
	{"pub", Publish, []string{}, false},
	{"sch  rep ", Search, []string{"rep"}, true},
	{"unp a b", Unpublish, []string{"a", "b"}, false},
	{"xit", Exit, []string{}, true},
	{"hbtlap", Unknown, []string{"hbtlap"}, false},
	{"", Unknown, nil, false},
}

func TestParseCommand(t *testing.T) {
	for _, tt := range parseTests {
		t.Run(tt.frame, func(t *testing.T) {
			cmd := ParseCommand(tt.frame)
			require.Equal(t, tt.kind, cmd.Kind)
			if len(tt.args) == 0 {
				require.Empty(t, cmd.Args)
			} else {
				require.Equal(t, tt.args, cmd.Args)
			}
			require.Equal(t, tt.wellFomed, cmd.WellFormed())
		})
	}
}

func TestCommandStrings(t *testing.T) {
	require.Equal(t, "auth bob pw", AuthCommand("bob", "pw"))
	require.Equal(t, "port 4242", PortCommand(4242))
	require.Equal(t, "unknown", CommandKind(99).String())
}

func TestParsePort(t *testing.T) {
	p, err := ParsePort("65535")
	require.Nil(t, err)
	require.Equal(t, uint16(65535), p)

	for _, bad := range []string{"0", "-1", "65536", "abc", ""} {
		_, err := ParsePort(bad)
		require.NotNil(t, err, bad)
	}
}

func TestListResponses(t *testing.T) {
	require.Equal(t, NoActivePeers, ListResponse(ListPeers, nil))
	require.Equal(t, NoFilesPublished, ListResponse(ListFiles, nil))
	require.Equal(t, NoFilesFound, ListResponse(Search, nil))
	require.Equal(t, "lap alice bob", ListResponse(ListPeers, []string{"alice", "bob"}))
	require.Equal(t, "sch report.pdf", ListResponse(Search, []string{"report.pdf"}))

	require.Equal(t, []string{"alice", "bob"}, ParseListResponse(ListPeers, "lap alice bob"))
	require.Nil(t, ParseListResponse(ListPeers, NoActivePeers))
	require.Nil(t, ParseListResponse(Search, InputErr))
}

func TestGetResponse(t *testing.T) {
	resp := GetResponse("127.0.0.1", 50123, "report.pdf")
	require.Equal(t, "get 127.0.0.1 50123 report.pdf", resp)

	host, port, name, err := ParseGetResponse(resp)
	require.Nil(t, err)
	require.Equal(t, "127.0.0.1", host)
	require.Equal(t, uint16(50123), port)
	require.Equal(t, "report.pdf", name)

	_, _, _, err = ParseGetResponse(GetErr)
	require.Equal(t, ErrInvalidRequest, err)
}

func TestValidFilename(t *testing.T) {
	require.True(t, ValidFilename("report.pdf"))
	require.False(t, ValidFilename(""))
	require.False(t, ValidFilename("two words"))
}

func TestFrameReaderOneReadPerFrame(t *testing.T) {
	r := io.MultiReader(bytes.NewBufferString("auth alice pw"), bytes.NewBufferString("hbt"))
	fr := NewFrameReader(r)

	frame, err := fr.ReadFrame()
	require.Nil(t, err)
	require.Equal(t, "auth alice pw", frame)

	frame, err = fr.ReadFrame()
	require.Nil(t, err)
	require.Equal(t, "hbt", frame)

	_, err = fr.ReadFrame()
	require.Equal(t, io.EOF, err)
}

func TestFrameReaderSplitsDelimited(t *testing.T) {
	fr := NewFrameReader(bytes.NewBufferString("hbt\nlap\r\n\nsch rep\n"))

	var frames []string
	for {
		frame, err := fr.ReadFrame()
		if err != nil {
			require.Equal(t, io.EOF, err)
			break
		}
		frames = append(frames, frame)
	}
	require.Equal(t, []string{"hbt", "lap", "sch rep"}, frames)
}

func TestFrameReaderDataWithError(t *testing.T) {
	fr := NewFrameReader(iotest.DataErrReader(bytes.NewBufferString("xit")))

	frame, err := fr.ReadFrame()
	require.Nil(t, err)
	require.Equal(t, "xit", frame)

	_, err = fr.ReadFrame()
	require.Equal(t, io.EOF, err)
}

func TestFrameWriter(t *testing.T) {
	var buf bytes.Buffer
	fw := NewFrameWriter(&buf)
	require.Nil(t, fw.WriteFrame(AuthOK))
	require.Equal(t, "auth OK", buf.String())

	buf.Reset()
	fw.Delimit = true
	require.Nil(t, fw.WriteFrame("hbt"))
	require.Equal(t, "hbt\n", buf.String())
}
