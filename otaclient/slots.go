package otaclient

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/glog"
	update "github.com/inconshreveable/go-update"
	"github.com/pkg/errors"
)

const (
	Slot0    = "ota_0"
	Slot1    = "ota_1"
	bootFile = "boot"
)

var ErrUnknownSlot = errors.New("otaclient: unknown slot")

// SlotSet is a directory with the two OTA slots ota_0 and ota_1 and a
// boot file naming the slot to boot from. Updates always go to the
// slot that is not booted, so the running image stays intact.
type SlotSet struct {
	Dir string
}

func (s *SlotSet) Path(slot string) string {
	return filepath.Join(s.Dir, slot)
}

// Boot returns the slot named in the boot file, "" if there is none.
func (s *SlotSet) Boot() (string, error) {
	buf, err := ioutil.ReadFile(s.Path(bootFile))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrapf(err, "failed to read boot slot in %s", s.Dir)
	}
	slot := strings.TrimSpace(string(buf))
	if err := checkSlot(slot); err != nil {
		return "", err
	}
	return slot, nil
}

// Next returns the slot the next update is written to.
func (s *SlotSet) Next() (string, error) {
	boot, err := s.Boot()
	if err != nil {
		return "", err
	}
	if boot == Slot0 {
		return Slot1, nil
	}
	return Slot0, nil
}

// SetBoot replaces the boot file atomically.
func (s *SlotSet) SetBoot(slot string) error {
	if err := checkSlot(slot); err != nil {
		return err
	}
	fpath := s.Path(bootFile)
	if _, err := ensureSlot(fpath); err != nil {
		return err
	}
	err := update.Apply(strings.NewReader(slot+"\n"), update.Options{
		TargetPath: fpath,
		TargetMode: slotMode,
	})
	return errors.Wrapf(err, "failed to set boot slot %s", slot)
}

func checkSlot(slot string) error {
	if slot != Slot0 && slot != Slot1 {
		return errors.Wrapf(ErrUnknownSlot, "%q", slot)
	}
	return nil
}

// UpdateSlots writes the firmware into the slot that is not booted and
// marks it as boot slot once the image is complete. A failed download
// leaves the boot file unchanged.
func (c *Client) UpdateSlots(ctx context.Context, slots *SlotSet) (string, int64, error) {
	next, err := slots.Next()
	if err != nil {
		return "", 0, err
	}
	n, err := c.update(ctx, slots.Path(next))
	if err != nil {
		return next, n, err
	}
	if err := slots.SetBoot(next); err != nil {
		return next, n, err
	}
	glog.Infof("Boot slot is now %s", next)
	return next, n, nil
}
