package replay

import (
	"bufio"
	"io"

	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/sigmazero/sigmazero/internal/syncqueue"
)

// ReadStreams starts one reader goroutine per input stream (§5 "one thread
// per input replay stream, each blocked on getline, pushes onto a shared
// queue") and returns a Queue merging all of them. A malformed line is
// logged and skipped (§7); the stream stays alive. The reader goroutines
// are supervised by an errgroup.Group, which surfaces a stream's genuine
// I/O failure (as opposed to a merely malformed line) once every stream
// has finished, rather than swallowing it silently.
func ReadStreams(done <-chan struct{}, streams ...io.Reader) *syncqueue.Queue[Record] {
	chans := make([]<-chan Record, len(streams))
	var g errgroup.Group
	for i, s := range streams {
		ch := make(chan Record)
		chans[i] = ch
		stream := s
		g.Go(func() error {
			return readStream(done, stream, ch)
		})
	}
	go func() {
		if err := g.Wait(); err != nil {
			klog.Warningf("replay: a reader stream exited with an error: %v", err)
		}
	}()
	return syncqueue.New(done, chans...)
}

func readStream(done <-chan struct{}, r io.Reader, out chan<- Record) error {
	defer close(out)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<24)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		rec, err := Decode(line)
		if err != nil {
			klog.Warningf("replay: skipping malformed record: %v", err)
			continue
		}
		select {
		case out <- rec:
		case <-done:
			return nil
		}
	}
	return scanner.Err()
}
