package expr

// Composite reports whether b would be parenthesised when grafted.
func Composite(b *Builder) bool {
	return b.composite()
}

// Tokens returns the placeholder tokens of a rendered text.
func Tokens(text string) []string {
	return placeholderRx.FindAllString(text, -1)
}
