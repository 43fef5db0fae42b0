package checkout

import (
	"fmt"
	"strings"
)

// Step prompts for the cart-building pipeline. Each one asks the agent for a
// specific JSON shape so the reply can be normalized downstream.

const productAnalyzerPrompt = `
The task is to extract the key information from the product page.

### INSTRUCTIONS
1. Make sure the current page is a product page (it should have a price, a buy button, a description)
2. Extract the exact data:
   - Product name
   - Price
   - Availability (text like "In stock", "X left", "Made to order")
3. Check that the add-to-cart button is active

### RESPONSE FORMAT:
` + "```json" + `
{
    "product_name": "name",
    "product_price": 9999,
    "availability": "status",
    "is_available": true/false,
    "error": "problem description (if any)"
}
`

const cartAdderPrompt = `
The task is to find the "Add to cart" button and press it correctly.

### INSTRUCTIONS:
1. **Find the add-to-cart button** (look for: "Add to cart", "Buy", "To cart").
2. **Check the button is active**:
   - If the button is greyed out or disabled ("Out of stock"), return an error.
   - If the button is active, press it.
3. **Wait for confirmation** (look for: a popup, the cart icon changing, a "Product added" message).

### RESPONSE FORMAT:
` + "```json" + `
{
    "success": true/false,
    "action": "Product added to cart",
    "error": "error description (if any)"
}
`

const cartNavigatorPrompt = `
The task is to find the button that opens the cart and press it.

### INSTRUCTIONS:
1. Find the cart element, usually in the top right corner of the screen
2. Click it
3. Confirm the transition succeeded (check for a "Cart" heading or a list of items).

### RESPONSE FORMAT:
` + "```json" + `
{
    "success": true/false,
    "page_loaded": true/false,
    "error": "Could not open the cart (if any)"
}
`

func cartVerificationPrompt(expectedProductName string, expectedPrice float64) string {
	return fmt.Sprintf(`
The task is to validate the cart contents.

### INSTRUCTIONS:
1. Make sure the current page is the cart (look for a "Cart" or "Shopping Cart" heading)
2. Check the cart contents:
   - There must be exactly 1 product
   - Its name must match: "%s"
   - Its price must be: %g
3. If there are unrelated products, remove them from the cart and check again

### RESPONSE FORMAT:
`+"```json"+`
{
    "is_cart_page": true/false,
    "product_match": true/false,
    "items_count": 1,
    "total_correct": true/false,
    "error": "discrepancies found"
}
`, expectedProductName, expectedPrice)
}

func quantityManagerPrompt(productName string, quantity int) string {
	return fmt.Sprintf(`
The task is to set the correct quantity for '%s' in the cart. Work step by step:

### INSTRUCTIONS:
1. Find the quantity control (an input field, +/- buttons, or a dropdown)
2. Set the value: %d
   - For an input field: clear it, enter the number, press Enter
   - For buttons: press "+" or "-" the required number of times
3. If the requested quantity is unavailable, set the maximum possible
4. Check that the quantity and the price have updated

### RESPONSE FORMAT:
`+"```json"+`
{
    "success": true/false,
    "set_quantity": actual_quantity,
    "max_available": maximum_available,
    "error": "problem description (if any)"
}
`, productName, quantity)
}

func checkoutProcessorPrompt(deliveryMethod, address, notes string) string {
	return fmt.Sprintf(`
You are an order placement expert. Fill in the data precisely and carefully.

INSTRUCTIONS:
1. Press the checkout button ("Checkout", "Place order")
2. Fill in the data:
   - Delivery method: "%s"
   - Address: "%s"
   - Contact details (phone, email, full name)
3. Add the comment: "%s"
4. Review all data before submitting

RESPONSE FORMAT:
`+"```json"+`
{
    "delivery_method": "method",
    "delivery_cost": 500,
    "estimated_date": "date",
    "subtotal": 9999,
    "total_price": 10499,
    "contact_info_verified": true/false,
    "error": "problem description"
}
`, deliveryMethod, address, notes)
}

func confirmPrompt(expected ExpectedOrder) string {
	var b strings.Builder
	fmt.Fprintf(&b, `
Your task is to confirm the order after checking all of its parameters.

STAGE 1: ORDER VALIDATION
Check the current order parameters on the page against the expected ones:

EXPECTED PARAMETERS:
- Product name: %s
- Quantity: %d pcs.
- Unit price: %g
- Delivery cost: %g
- Total price: %g
- Delivery method: %s

STAGE 2: DISCREPANCY CHECK
If ANY parameter does NOT match:
1. Record every discrepancy
2. Do NOT proceed with payment
3. Return the validation errors

STAGE 3: PAYMENT (only if validation passed)
1. Choose the payment method: %s
2. Fill in the card data:
   - Card number: {card_number}
   - Expiry date: {card_expiration_date}
   - CVV: {card_cvv}
   - Cardholder name: {cardholder_name}
3. Submit the payment
4. Wait for the operation result
5. Save the store's order number if one appears

RETURN THE RESULT IN JSON FORMAT:
`, expected.ProductName, expected.Quantity, expected.ProductPrice,
		expected.DeliveryCost, expected.TotalPrice, expected.DeliveryMethod,
		paymentMethodOrDefault(expected.PaymentMethod))

	b.WriteString(`{
    "validation_success": true/false,
    "validation_errors": ["list of validation errors"],
    "actual_product_name": "observed product name",
    "actual_quantity": observed_quantity,
    "actual_product_price": observed_unit_price,
    "actual_delivery_cost": observed_delivery_cost,
    "actual_total_price": observed_total_price,
    "payment_success": true/false,
    "payment_error": "payment error if any",
    "order_number": "order number from the store",
    "payment_confirmation": "payment confirmation",
    "status": "confirmed/failed/validation_failed"
}

IMPORTANT:
- Pay very close attention to numbers and prices
- Do not ignore error popups
- If validation fails, stop immediately
`)
	return b.String()
}

func paymentMethodOrDefault(method string) string {
	if method == "" {
		return "card"
	}
	return method
}
