package catalog

// Built-in product catalog. Costs are configuration, not behavior: deploys
// override them through the TOML catalog file.
var defaults = map[string]Entry{
	// Music
	"music_generate_v3":      {Cost: 6, Name: "Generate Music (V3)", Category: "music"},
	"music_generate_v3_5":    {Cost: 6, Name: "Generate Music (V3.5)", Category: "music"},
	"music_generate_v4":      {Cost: 6, Name: "Generate Music (V4)", Category: "music"},
	"music_generate_v4_5":    {Cost: 6, Name: "Generate Music (V4.5)", Category: "music"},
	"music_generate_v5":      {Cost: 6, Name: "Generate Music (V5)", Category: "music"},
	"music_add_instrumental": {Cost: 6, Name: "Add Instrumental", Category: "music"},
	"music_add_vocals":       {Cost: 6, Name: "Add Vocals", Category: "music"},
	"music_extend":           {Cost: 6, Name: "Extend Track", Category: "music"},
	"music_cover":            {Cost: 6, Name: "Create Cover", Category: "music"},
	"music_separate_vocals":  {Cost: 5, Name: "Separate Vocals (2-stem)", Category: "music"},
	"music_split_stem_full":  {Cost: 50, Name: "Full Stem Split (12-stem)", Category: "music"},
	"music_convert_wav":      {Cost: 1, Name: "Convert to WAV", Category: "music"},
	"music_generate_midi":    {Cost: 1, Name: "Generate MIDI", Category: "music"},

	// Image
	"image_fast":     {Cost: 15, Name: "Image Fast (1K)", Category: "image"},
	"image_standard": {Cost: 25, Name: "Image Standard (2K)", Category: "image"},
	"image_ultra":    {Cost: 35, Name: "Image Ultra (4K)", Category: "image"},

	// Video
	"video_gen4_5s":       {Cost: 20, Name: "Video Gen-4 (5s)", Category: "video"},
	"video_gen4_10s":      {Cost: 40, Name: "Video Gen-4 (10s)", Category: "video"},
	"video_gen4_aleph_5s": {Cost: 60, Name: "Video Gen-4 Aleph (5s)", Category: "video"},
	"image_to_video_5s":   {Cost: 18, Name: "Image to Video (5s)", Category: "video"},
	"image_to_video_10s":  {Cost: 35, Name: "Image to Video (10s)", Category: "video"},
	"video_to_video":      {Cost: 50, Name: "Video to Video Edit", Category: "video"},
	"video_upscale_5s":    {Cost: 10, Name: "Video Upscale (5s)", Category: "video"},
	"video_upscale_10s":   {Cost: 20, Name: "Video Upscale (10s)", Category: "video"},

	// Chat
	"chat_basic":    {Cost: 0, Name: "Basic Chat", Category: "chat"},
	"chat_advanced": {Cost: 1, Name: "Advanced Chat", Category: "chat"},

	// Design studio
	"design_generate_image":      {Cost: 4, Name: "Design: Generate Image", Category: "design"},
	"design_generate_logo":       {Cost: 6, Name: "Design: Generate Logo", Category: "design"},
	"design_edit_image":          {Cost: 5, Name: "Design: Edit Image", Category: "design"},
	"design_remove_background":   {Cost: 5, Name: "Design: Remove Background", Category: "design"},
	"design_upscale_image":       {Cost: 6, Name: "Design: Upscale HD", Category: "design"},
	"design_generate_variations": {Cost: 8, Name: "Design: Variations", Category: "design"},
	"design_analyze_image":       {Cost: 2, Name: "Design: Analyze Image", Category: "design"},
	"design_assistant":           {Cost: 1, Name: "Design: Assistant", Category: "design"},
	"design_export_png":          {Cost: 0, Name: "Design: Export PNG", Category: "design"},
	"design_export_svg":          {Cost: 0, Name: "Design: Export SVG", Category: "design"},
}
