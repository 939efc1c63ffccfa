package nl80211

// Command and attribute identifiers mirror Linux's <linux/nl80211.h>. They
// are kept package-local rather than pulled from golang.org/x/sys/unix
// because that package's generated NL80211_* set tracks whatever kernel
// headers built the running Go toolchain and has, at various versions,
// omitted the switch-notify and vendor-event ids this backend depends on.
const (
	CmdGetInterface   = 5
	CmdGetStation     = 17
	CmdChSwitchNotify = 88
	CmdVendor         = 103

	AttrIfindex      = 3
	AttrIfname       = 4
	AttrWiphyFreq    = 38
	AttrVendorID     = 195
	AttrVendorSubcmd = 196
	AttrVendorData   = 197

	GenlFamilyName = "nl80211"

	MulticastGroupMLME   = "mlme"
	MulticastGroupVendor = "vendor"
)
