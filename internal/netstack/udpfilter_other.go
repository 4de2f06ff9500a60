//go:build !linux

package netstack

// FilterDestination validates addr. Socket filters need linux; the stack
// still filters by address in software.
func (u *UDPInterface) FilterDestination(addr uint16) error {
	_, err := CompileDestinationFilter(addr)
	return err
}
