package forms

// Shared option lists.
const (
	conditions      = "new like_new good fair"
	sizes           = "mini small medium large jumbo"
	deliveryMethods = "shipping pickup both"
)

// SellItem is the marketplace listing form.
var SellItem = Schema{
	Name: "sell_item",
	Fields: []Field{
		{Name: "title", Label: "Title", Rules: "required,min=3,max=120"},
		{Name: "description", Label: "Description", Rules: "required,min=10,max=2000"},
		{Name: "content", Label: "Story", Rules: "max=5000"},
		{Name: "image", Label: "Image", Rules: "omitempty,url"},
		{Name: "price", Label: "Price", Kind: KindNumber, Rules: "required,gt=0,lte=100000"},
		{Name: "condition", Label: "Condition", Rules: "required,oneof=" + conditions},
		{Name: "species", Label: "Species", Rules: "required,min=2,max=40"},
		{Name: "size", Label: "Size", Rules: "required,oneof=" + sizes},
		{Name: "brand", Label: "Brand", Rules: "max=60"},
		{Name: "material", Label: "Material", Rules: "max=60"},
		{Name: "color", Label: "Color", Rules: "max=40"},
		{Name: "delivery_method", Label: "Delivery", Rules: "required,oneof=" + deliveryMethods},
		{Name: "delivery_cost", Label: "Delivery cost", Kind: KindNumber, Rules: "gte=0,lte=1000"},
		{Name: "tags", Label: "Tags", Kind: KindStrings, Rules: "tag_list"},
	},
}

// PostDraft is the feed post form. Sale fields are optional here.
var PostDraft = Schema{
	Name: "post_draft",
	Fields: []Field{
		{Name: "title", Label: "Title", Rules: "required,min=3,max=120"},
		{Name: "description", Label: "Description", Rules: "max=2000"},
		{Name: "content", Label: "Content", Rules: "max=5000"},
		{Name: "image", Label: "Image", Rules: "omitempty,url"},
		{Name: "tags", Label: "Tags", Kind: KindStrings, Rules: "tag_list"},
		{Name: "for_sale", Label: "For sale", Kind: KindBool},
		{Name: "price", Label: "Price", Kind: KindNumber, Rules: "gte=0,lte=100000"},
		{Name: "condition", Label: "Condition", Rules: "omitempty,oneof=" + conditions},
		{Name: "species", Label: "Species", Rules: "max=40"},
		{Name: "size", Label: "Size", Rules: "omitempty,oneof=" + sizes},
		{Name: "delivery_method", Label: "Delivery", Rules: "omitempty,oneof=" + deliveryMethods},
		{Name: "delivery_cost", Label: "Delivery cost", Kind: KindNumber, Rules: "gte=0,lte=1000"},
	},
}

// CommentDraft is the reply box under a post.
var CommentDraft = Schema{
	Name: "comment",
	Fields: []Field{
		{Name: "content", Label: "Comment", Rules: "required,min=1,max=1000"},
	},
}

// ProfileSettings edits the profile header and bio.
var ProfileSettings = Schema{
	Name: "profile_settings",
	Fields: []Field{
		{Name: "display_name", Label: "Display name", Rules: "required,min=1,max=50"},
		{Name: "bio", Label: "Bio", Rules: "max=500"},
		{Name: "location", Label: "Location", Rules: "max=80"},
		{Name: "header_color", Label: "Header color", Rules: "omitempty,hexcolor"},
		{Name: "header_image", Label: "Header image", Rules: "omitempty,url"},
		{Name: "favorite_species", Label: "Favorite species", Rules: "max=40"},
	},
}

// Onboarding is the first-run form.
var Onboarding = Schema{
	Name: "onboarding",
	Fields: []Field{
		{Name: "username", Label: "Username", Rules: "required,username"},
		{Name: "display_name", Label: "Display name", Rules: "required,min=1,max=50"},
		{Name: "favorite_species", Label: "Favorite species", Rules: "required,min=2,max=40"},
		{Name: "bio", Label: "Bio", Rules: "max=500"},
	},
}

// Wishlist adds an item to the wishlist.
var Wishlist = Schema{
	Name: "wishlist",
	Fields: []Field{
		{Name: "title", Label: "Title", Rules: "required,min=2,max=120"},
		{Name: "plushie_id", Label: "Plushie", Rules: "max=64"},
		{Name: "image", Label: "Image", Rules: "omitempty,url"},
		{Name: "price", Label: "Price", Kind: KindNumber, Rules: "gte=0,lte=100000"},
		{Name: "brand", Label: "Brand", Rules: "max=60"},
		{Name: "species", Label: "Species", Rules: "max=40"},
		{Name: "priority", Label: "Priority", Rules: "omitempty,oneof=low medium high"},
	},
}

// Bid places an offer on a listing.
var Bid = Schema{
	Name: "bid",
	Fields: []Field{
		{Name: "amount", Label: "Bid", Kind: KindNumber, Rules: "required,gt=0,lte=100000"},
	},
}

// TradeOffer proposes a trade for a listing.
var TradeOffer = Schema{
	Name: "trade_offer",
	Fields: []Field{
		{Name: "listing_id", Label: "Listing", Rules: "required,max=64"},
		{Name: "offered_post_ids", Label: "Offered plushies", Kind: KindStrings, Rules: "min=1,max=5"},
		{Name: "message", Label: "Message", Rules: "max=500"},
	},
}
