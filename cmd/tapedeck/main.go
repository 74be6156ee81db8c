// tapedeck records system audio into one file per playlist track, splitting
// on the silence gaps between tracks.
package main

func main() {
	Execute()
}
