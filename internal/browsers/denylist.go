package browsers

// firefoxDenyList holds add-ons that ship with Firefox itself.
var firefoxDenyList = map[string]bool{
	"Pocket":                          true,
	"Form Autofill":                   true,
	"Firefox Screenshots":             true,
	"Web Compatibility Interventions": true,
	"WebCompat Reporter":              true,
	"Picture-In-Picture":              true,
	"Add-ons Search Detection":        true,
	"DoH Roll-Out":                    true,
	"Default":                         true,
}

// chromeDenyList holds extension ids bundled with Chrome or installed by
// Google apps.
var chromeDenyList = map[string]string{
	"nmmhkkegccagdldgiimedpiccmgmieda": "Chrome Web Store Payments",
	"pkedcjkdefgpdelpbcmbmeomcjbeemfm": "Chrome Media Router",
	"ghbmnnjooekpmoecnnnilnnbdlolhkhi": "Google Docs Offline",
	"aapocclcgogkmnckokdopfmhonfmgoek": "Google Slides",
	"aohghmighlieiainnegkcijnfilokake": "Google Docs",
	"apdfllckaahabafndbhieahigkjlhalf": "Google Drive",
	"blpcfgokakmgnkcojhhkbfbldkacnbeo": "YouTube",
	"felcaaldnbdncclmgdcncolpebgiejap": "Google Sheets",
	"pjkljhegncpnkpknbcohdijeoejaedia": "Gmail",
	"mhjfbmdgcfjbbpaeojofohoefgiehjai": "Chrome PDF Viewer",
	"nkeimhogjdpnpccoofpliimaahmaaome": "Google Hangouts",
}

func firefoxDenied(name string) bool {
	return firefoxDenyList[name]
}

func chromeDenied(id string) bool {
	_, ok := chromeDenyList[id]
	return ok
}
