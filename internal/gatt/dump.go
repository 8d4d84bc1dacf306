package gatt

import (
	"bytes"
	"fmt"
	"io"

	"github.com/srg/gattstream/internal/bledb"
)

// DumpDescriptors writes the resolved table as text, one line per service,
// characteristic and descriptor, in a single write.
func (s *Session) DumpDescriptors(w io.Writer) error {
	var buf bytes.Buffer
	for _, svc := range s.Services() {
		fmt.Fprintf(&buf, "Service %s, hnd=0x%04X-0x%04X\n", bledb.Describe(svc.UUID), svc.Handle, svc.EndHandle)
		for _, c := range svc.Characteristics {
			fmt.Fprintf(&buf, "  Characteristic %s, hnd=0x%04X, value=0x%04X, props=%s\n",
				bledb.Describe(c.UUID), c.Handle, c.ValueHandle, c.Properties)
			for _, d := range c.Descriptors {
				fmt.Fprintf(&buf, "    Descriptor %s, hnd=0x%04X\n", bledb.Describe(d.UUID), d.Handle)
			}
		}
	}

	_, err := w.Write(buf.Bytes())
	return err
}
