package fake

import (
	"context"
	"testing"
	"time"

	"github.com/matryer/is"
)

func TestFakeTranscriber_FIFO(t *testing.T) {
	is := is.New(t)

	f := NewFakeTranscriber("one", "two", "three")
	is.NoErr(f.Start(context.Background()))

	ctx := context.Background()
	is.NoErr(f.Submit(ctx, []byte{1}))
	is.NoErr(f.Submit(ctx, []byte{2}))
	is.NoErr(f.Submit(ctx, []byte{3}))

	// Results arrive strictly in submission order
	for _, want := range []string{"one", "two", "three"} {
		select {
		case res := <-f.Results():
			is.NoErr(res.Err)          // scripted results never fail
			is.Equal(res.Text, want)   // results must preserve submission order
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for result")
		}
	}

	is.NoErr(f.Stop())
}

func TestFakeTranscriber_DefaultTranscript(t *testing.T) {
	is := is.New(t)

	f := NewFakeTranscriber("scripted")
	is.NoErr(f.Start(context.Background()))

	ctx := context.Background()
	is.NoErr(f.Submit(ctx, []byte{1}))
	is.NoErr(f.Submit(ctx, []byte{2})) // past the script

	res := <-f.Results()
	is.Equal(res.Text, "scripted")

	res = <-f.Results()
	is.Equal(res.Text, DefaultTranscript) // exhausted script falls back

	is.NoErr(f.Stop())
}

func TestFakeTranscriber_StopClosesResults(t *testing.T) {
	is := is.New(t)

	f := NewFakeTranscriber()
	is.NoErr(f.Start(context.Background()))
	is.NoErr(f.Stop())

	_, ok := <-f.Results()
	is.True(!ok) // result channel should be closed after Stop

	// Submitting after stop fails
	err := f.Submit(context.Background(), []byte{1})
	is.True(err != nil)
}

func TestFakeTranscriber_DelayReportedAsLatency(t *testing.T) {
	is := is.New(t)

	f := NewFakeTranscriber("hello")
	f.SetDelay(10 * time.Millisecond)
	is.NoErr(f.Start(context.Background()))
	is.NoErr(f.Submit(context.Background(), []byte{1}))

	res := <-f.Results()
	is.Equal(res.Latency, 10*time.Millisecond)

	is.NoErr(f.Stop())
}
