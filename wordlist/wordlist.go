// Package wordlist holds the fixed 256-word verbal-verification list
// challenge/response uses to let a human confirm a WORDS hint out of
// band. Entries are short, phonetically distinct English words chosen
// to be easy to read aloud and hard to confuse pairwise.
package wordlist

import "errors"

// ErrIndexRange is returned by Word for any index outside [0, 255].
var ErrIndexRange = errors.New("wordlist: index out of range")

// Words is the ordered 256-entry verification list. Index 0..255.
var Words = [256]string{
	"abacus", "acid", "acorn", "actor", "adder", "admiral", "agate", "alarm",
	"albino", "alder", "alloy", "almond", "alpine", "amber", "amigo", "anchor",
	"angle", "anvil", "apple", "apron", "arbor", "arctic", "arena", "armor",
	"arrow", "ashen", "aspen", "atlas", "attic", "auburn", "august", "aurora",
	"avenue", "axiom", "azure", "badge", "baker", "balsa", "bamboo", "banjo",
	"barge", "basil", "basin", "beacon", "beagle", "beaver", "beetle", "belfry",
	"bellow", "beluga", "bicep", "bishop", "bistro", "blaze", "blimp", "blitz",
	"bloom", "bluff", "boiler", "bolt", "bonfire", "bonsai", "boulder", "bovine",
	"bramble", "brandy", "brass", "brisk", "bronco", "bronze", "brook", "buckle",
	"buffalo", "bugle", "bumper", "bunker", "burlap", "cactus", "camber", "candle",
	"canoe", "canyon", "caramel", "carbon", "carpet", "cashew", "castle", "cedar",
	"celery", "cello", "cement", "chalk", "chamber", "charcoal", "cheddar", "chrome",
	"cider", "cinder", "cipher", "citron", "clamp", "clover", "cobalt", "cobra",
	"cocoa", "comet", "compass", "condor", "copper", "coral", "corgi", "cosmos",
	"cougar", "cranberry", "crater", "crayon", "cresset", "cricket", "cumin", "cyclone",
	"dagger", "damson", "dapple", "darnel", "dawn", "decant", "deckle", "deer",
	"delta", "desert", "diamond", "dimple", "dinghy", "domino", "donkey", "dragon",
	"driftwood", "drummer", "dugout", "dune", "dusk", "eagle", "earl", "ebony",
	"eclipse", "egret", "elbow", "elder", "elm", "ember", "emerald", "empire",
	"falcon", "fennel", "ferret", "fiddle", "fjord", "flannel", "flask", "flint",
	"forge", "fossil", "foxglove", "frigate", "frost", "garnet", "gazebo", "gecko",
	"gibbon", "ginger", "glacier", "goblet", "gopher", "granite", "gravel", "griffin",
	"gumbo", "gypsum", "halyard", "hamlet", "harbor", "harrier", "hatchet", "hazel",
	"heron", "hickory", "hollow", "hornet", "hyacinth", "ibex", "icicle", "indigo",
	"ingot", "ivory", "jackal", "jasper", "javelin", "jetty", "jigsaw", "jubilee",
	"juniper", "kelp", "kernel", "kestrel", "kettle", "kiln", "kipper", "kraken",
	"lagoon", "lantern", "larch", "lattice", "lemur", "lichen", "lilac", "limpet",
	"linden", "lobster", "locust", "lupine", "lynx", "magpie", "mallard", "mammoth",
	"manatee", "mantis", "maple", "marble", "marlin", "marmot", "marsh", "meadow",
	"mercury", "meteor", "mica", "minnow", "mirage", "mosaic", "mustang", "myrtle",
	"narwhal", "nebula", "nectar", "newt", "nickel", "nimbus", "nutmeg", "oasis",
	"obelisk", "ocelot", "onyx", "opal", "orbit", "orchid", "osprey", "otter",
}

// Word returns the verification word at index i (0..255).
func Word(i int) (string, error) {
	if i < 0 || i > 255 {
		return "", ErrIndexRange
	}
	return Words[i], nil
}
