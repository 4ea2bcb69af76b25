package link

// BaudUIps returns the unit interval in picoseconds for a symbol rate given
// in GBd. The whole pipeline quotes horizontal quantities against this UI.
func BaudUIps(baudGBd float64) float64 {
	return 1000.0 / baudGBd
}

// NyquistGHz returns the Nyquist frequency of a symbol rate in GBd.
func NyquistGHz(baudGBd float64) float64 {
	return baudGBd / 2
}
