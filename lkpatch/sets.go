package lkpatch

import "fmt"

const (
	AVBKeyOffset = 0x136F80
	AVBKeyLength = 256

	orangeImm = 0xF35

	lockRestoreCall = 0xC59C
)

type branchSite struct {
	offset int
	target int
	label  string
}

type immSite struct {
	offset   int
	expected uint32
	label    string
}

type literalSite struct {
	offset   int
	old, new string
	label    string
}

type wordSite struct {
	offset        int
	expected, new uint32
	label         string
}

var imgAuthBranches = []branchSite{
	{0x095554, 0x0957C8, "copyA CBNZ img_auth"},
	{0x09566C, 0x095800, "copyA CBNZ img_auth_mkimg"},
	{0x1B957C, 0x1B97F0, "copyB CBNZ img_auth"},
	{0x1B9694, 0x1B9828, "copyB CBNZ img_auth_mkimg"},
	{0x2D1530, 0x2D17A4, "copyC CBNZ img_auth"},
	{0x2D1648, 0x2D17DC, "copyC CBNZ img_auth_mkimg"},
}

var orangeSelectors = []immSite{
	{0x085CF8, 0xF7F, "selector red -> orange"},
	{0x085D7C, 0xFA1, "selector green -> orange"},
	{0x0ADA00, 0xFA1, "selector green copy2 -> orange"},
	{0x141DE0, 0xFA1, "selector green copy3a -> orange"},
	{0x1428B0, 0xFA1, "selector green copy3b -> orange"},
	{0x142988, 0xFA1, "selector green copy3c -> orange"},
	{0x142AE4, 0xFA1, "selector green copy3d -> orange"},
	{0x142BD0, 0xFA1, "selector green copy3e -> orange"},
	{0x142C08, 0xFA1, "selector green copy3f -> orange"},
	{0x15607C, 0xF7F, "selector red copy4 -> orange"},
	{0x15CF7C, 0xFA1, "selector green copy5a -> orange"},
	{0x15CFF4, 0xFA1, "selector green copy5b -> orange"},
}

var selinuxLiterals = []literalSite{
	{0x0B13A6, "androidboot.meta_log_disable=1\x00", "androidboot.selinux=permissive\x00", "meta_log_disable=1 -> selinux=permissive"},
	{0x0B13C5, "androidboot.meta_log_disable=0\x00", "androidboot.selinux=permissive\x00", "meta_log_disable=0 -> selinux=permissive"},
}

/* Remaining BL callers of the lock-state restore helper at 0x27430 */
var lockRestoreCallers = []wordSite{
	{0x006CD0, 0x940081D8, insnMOVW00, "skip restore caller #1"},
	{0x006F10, 0x94008148, insnMOVW00, "skip restore caller #2"},
}

/* Lock-state getter: store state 3 and return 0 */
var lockStateGetter = []wordSite{
	{0x0A333C, 0x97FFFF3D, 0x52800068, "lock_get: mov w8, #3"},
	{0x0A3340, 0x900007E8, 0xB9000268, "lock_get: str w8, [x19]"},
	{0x0A3344, 0xB9458D08, 0x2A1F03E0, "lock_get: mov w0, wzr"},
	{0x0A3348, 0x7100001F, insnNOP, "lock_get: nop cmp"},
	{0x0A334C, 0x52860009, insnNOP, "lock_get: nop mov"},
	{0x0A3350, 0x72A00209, insnNOP, "lock_get: nop movk"},
	{0x0A3354, 0x1A9F0508, insnNOP, "lock_get: nop csinc"},
	{0x0A3358, 0xB9000268, insnNOP, "lock_get: nop str"},
	{0x0A3360, 0x1A8903E0, 0x2A1F03E0, "lock_get: force return 0"},
}

type Config struct {
	LogFunc LogFunc
}

// PatchV16 embeds avbKey (the raw 256 byte modulus) and applies the v16
// set. The input is never modified; on error nothing is returned.
func PatchV16(lk []byte, avbKey []byte, config Config) ([]byte, []Change, error) {
	if len(avbKey) != AVBKeyLength {
		return nil, nil, fmt.Errorf("got %d bytes, want %d: %w", len(avbKey), AVBKeyLength, ErrorKeyLength)
	}

	p := newPatcher(lk, config.LogFunc)

	p.section("[1] AVB public key replacement")
	if err := p.write(AVBKeyOffset, avbKey, "AVB key from vbmeta"); err != nil {
		return nil, nil, err
	}

	p.section("[2] Bypass image-auth CBNZ branches")
	for _, m := range imgAuthBranches {
		if err := p.expectCBNZ(m.offset, m.target); err != nil {
			return nil, nil, err
		}
		if err := p.writeU32(m.offset, insnNOP, m.label); err != nil {
			return nil, nil, err
		}
	}

	p.section("[3] Force verifiedbootstate selectors to orange")
	for _, m := range orangeSelectors {
		if err := p.replaceAddImm(m.offset, m.expected, orangeImm, m.label); err != nil {
			return nil, nil, err
		}
	}

	p.section("[4] Rewrite cmdline literals to selinux permissive")
	for _, m := range selinuxLiterals {
		if err := p.replaceBytes(m.offset, []byte(m.old), []byte(m.new), m.label); err != nil {
			return nil, nil, err
		}
	}

	p.section("[5] Skip backup lock-state restore")
	if err := p.expectBL(lockRestoreCall); err != nil {
		return nil, nil, err
	}
	if err := p.writeU32(lockRestoreCall, insnMOVW00, "boot_linux_fdt restore lock -> success no-op"); err != nil {
		return nil, nil, err
	}

	return p.image, p.changes, nil
}

// PatchV18 applies the v18 lock-state fixes on top of a v16 image.
func PatchV18(lk []byte, config Config) ([]byte, []Change, error) {
	p := newPatcher(lk, config.LogFunc)

	marker, err := p.u32(lockRestoreCall)
	if err != nil {
		return nil, nil, err
	}
	if marker != insnMOVW00 {
		return nil, nil, fmt.Errorf("0x%06X is 0x%08X: %w", lockRestoreCall, marker, ErrorNotPatchedV16)
	}

	p.section("[1] Disable remaining lock-restore callers")
	for _, m := range lockRestoreCallers {
		if err := p.replaceU32(m.offset, m.expected, m.new, m.label); err != nil {
			return nil, nil, err
		}
	}

	p.section("[2] Force lock-state getter to state=3 / success")
	for _, m := range lockStateGetter {
		if err := p.replaceU32(m.offset, m.expected, m.new, m.label); err != nil {
			return nil, nil, err
		}
	}

	return p.image, p.changes, nil
}

type Level int

const (
	LevelUnknown Level = iota
	LevelStock
	LevelV16
	LevelV18
)

func (l Level) String() string {
	switch l {
	case LevelStock:
		return "stock"
	case LevelV16:
		return "v16"
	case LevelV18:
		return "v18"
	}
	return "unknown"
}

// Detect guesses which patch set an image carries from the lock restore
// call sites.
func Detect(lk []byte) Level {
	p := &patcher{image: lk}

	restore, err := p.u32(lockRestoreCall)
	if err != nil {
		return LevelUnknown
	}
	if restore&0xFC000000 == 0x94000000 {
		return LevelStock
	}
	if restore != insnMOVW00 {
		return LevelUnknown
	}

	caller, err := p.u32(lockRestoreCallers[0].offset)
	if err == nil && caller == insnMOVW00 {
		return LevelV18
	}
	return LevelV16
}
