package producer

// normalizeToBGR resizes a packed 3-channel buffer from (srcW, srcH) to
// (dstW, dstH) using nearest-neighbor sampling and reorders channels to BGR
// if the source was captured as RGB. Already-matching geometry and color
// space is a no-op copy.
func normalizeToBGR(src []byte, srcW, srcH int, srcIsRGB bool, dstW, dstH int) []byte {
	dst := make([]byte, dstW*dstH*3)
	if srcW <= 0 || srcH <= 0 || len(src) != srcW*srcH*3 {
		return dst
	}
	for y := 0; y < dstH; y++ {
		sy := y * srcH / dstH
		for x := 0; x < dstW; x++ {
			sx := x * srcW / dstW
			srcOff := (sy*srcW + sx) * 3
			dstOff := (y*dstW + x) * 3
			if srcIsRGB {
				//1.- RGB source: swap channel order into BGR.
				dst[dstOff] = src[srcOff+2]
				dst[dstOff+1] = src[srcOff+1]
				dst[dstOff+2] = src[srcOff]
			} else {
				dst[dstOff] = src[srcOff]
				dst[dstOff+1] = src[srcOff+1]
				dst[dstOff+2] = src[srcOff+2]
			}
		}
	}
	return dst
}
