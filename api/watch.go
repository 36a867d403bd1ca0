package api

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/golang/glog"
	"github.com/pkg/errors"
)

// Watcher reports changes of the firmware artifact. It watches the
// parent directory, so the file may be created after the watcher.
type Watcher struct {
	fw       *fsnotify.Watcher
	name     string
	onChange func(fsnotify.Event)
	done     chan struct{}
}

// NewWatcher starts watching fpath. onChange is called from the
// watcher goroutine for every event on the file.
func NewWatcher(fpath string, onChange func(fsnotify.Event)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create watcher")
	}
	dir := filepath.Dir(fpath)
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, errors.Wrapf(err, "failed to watch %s", dir)
	}

	w := &Watcher{
		fw:       fw,
		name:     filepath.Base(fpath),
		onChange: onChange,
		done:     make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != w.name {
				continue
			}
			glog.Infof("firmware %s changed: %s", event.Name, event.Op)
			if w.onChange != nil {
				w.onChange(event)
			}
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			glog.Errorf("firmware watcher failed: %v", err)
		}
	}
}

// Close stops the watcher and waits for its goroutine.
func (w *Watcher) Close() error {
	err := w.fw.Close()
	<-w.done
	return err
}
